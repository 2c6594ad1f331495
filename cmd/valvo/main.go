// Valvo - Policy Enforcement Engine
// Evaluate. Act. Audit.
package main

func main() {
	Execute()
}
