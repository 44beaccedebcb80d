// Package nats connects upstream producers to the gateway. Producers
// publish domain events on a NATS subject; the ingress turns each event
// into one publish per derived channel.
package nats
