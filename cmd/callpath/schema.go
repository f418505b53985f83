package main

import (
	"github.com/broady/callpath/config"
)

type SchemaCmd struct{}

func (c *SchemaCmd) Run(g *Globals) error {
	return writeJSON(g.Stdout, config.JSONSchema(), true)
}
