package main

import "github.com/tadoEng/EtabExtension/cmd"

func main() {
	cmd.Execute()
}
