package main

import "github.com/jmorgan/regflag/cmd"

func main() {
	cmd.Execute()
}
