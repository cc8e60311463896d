package main

import "github.com/trueLoving/Stationuli/cmd"

func main() {
	cmd.Execute()
}
