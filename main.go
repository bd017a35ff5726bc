package main

import "github.com/haltia-gis/terrainmap/internal/cmd"

func main() {
	cmd.Execute()
}
