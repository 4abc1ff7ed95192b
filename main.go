package main

import "github.com/sheetmerge/sheetmerge/cmd"

func main() {
	cmd.Execute()
}
