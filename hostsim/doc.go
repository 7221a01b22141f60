// Package hostsim is an in-process stand-in for the host side of the widget
// plugin API. It keeps a selected table and record, option storage and event
// subscriptions, serves calls through the hostfuncs registry over a JSON
// loopback transport, and records every output slot update.
package hostsim
