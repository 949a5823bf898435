package main

import "github.com/cognitodev/launchpad/cmd"

func main() {
	cmd.Execute()
}
