package main

import "github.com/PabloGalante/mermaid-agent/internal/cli"

func main() {
	cli.Execute()
}
