package main

import "github.com/notargets/meshadapt/cmd"

func main() {
	cmd.Execute()
}
