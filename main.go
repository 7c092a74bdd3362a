package main

import "github.com/frahmantamala/sss-portal/cmd"

func main() {
	cmd.Execute()
}
