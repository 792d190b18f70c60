// Package services contains the application services the CLI talks to:
// MutationService records local changes and exposes the queue to the user,
// Housekeeper trims what has already reached the server.
package services
