// Package architecture projects a service dependency model onto a service
// graph, validates it for cyclic service calls and exports it as JSON.
package architecture
