/*
Package widget hosts widget instances.

The Manager owns one sandbox instance per record. Config writes made by
widget code through props.setCustomData are persisted to the Store, and
crash reports sent from the fallback UI are published on the Hub, which
fans them out to report stream subscribers and keeps recent ones.

Seeded widgets come from *.widget.yaml manifests:

	name: Clock
	code_file: clock.js
	width: 320
	height: 120
	custom_data:
	  timezone: Europe/Oslo

The Watcher reloads a seeded widget when its manifest or code file changes.
Persisted customData survives reloads.
*/
package widget
