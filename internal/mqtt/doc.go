// Package mqtt forwards operational events from the event bus to an
// MQTT broker. Each event is published as JSON under
// <topic_prefix>/<source>/<kind>, and a retained availability topic
// tracks whether the process is online.
//
// The forwarder uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. A will message
// ensures the availability topic transitions to "offline" on
// unexpected disconnects.
package mqtt
