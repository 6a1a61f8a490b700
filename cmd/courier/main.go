// Command courier sends mail and manages list subscriptions from the command
// line using a YAML configuration file.
package main

func main() {
	Execute()
}
