// Command drift is a local-first todo manager with offline sync.
package main

func main() {
	Execute()
}
