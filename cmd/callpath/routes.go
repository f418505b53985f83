package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/broady/callpath"
)

type RoutesCmd struct {
	Tree bool `help:"Print the call tree keys instead of a table." short:"t"`
}

func (c *RoutesCmd) Run(g *Globals, cli *CLI) error {
	cfg, err := cli.load()
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	root, err := callpath.Build(reg)
	if err != nil {
		return err
	}

	if c.Tree {
		printTree(g.Stdout, root, 0)
		return nil
	}
	return printRoutes(g.Stdout, root)
}

func printRoutes(w io.Writer, root *callpath.Node) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tMETHOD\tPATH\tRESPONSE")
	root.Walk(func(r *callpath.Route) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Key, r.Endpoint.Method, r.Endpoint.Prefix+r.Template.String(), r.Endpoint.Response.Kind)
	})
	return tw.Flush()
}

// printTree writes one key per line, indented by depth. Terminal keys
// are leaves.
func printTree(w io.Writer, n *callpath.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, key := range n.Keys() {
		var child *callpath.Node
		var ok bool
		if name, isParam := strings.CutPrefix(key, ":"); isParam {
			child, ok = n.ParamChild(name)
		} else {
			child, ok = n.Child(key)
		}
		if !ok {
			fmt.Fprintf(w, "%s%s()\n", indent, key)
			continue
		}
		fmt.Fprintf(w, "%s%s\n", indent, key)
		printTree(w, child, depth+1)
	}
}
