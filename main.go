package main

import "github.com/duocaplab/duocap/cmd"

func main() {
	cmd.Execute()
}
