// Package core defines the domain model shared by the correlation engine:
// events, rule definitions, alerts, severities and the error taxonomy.
//
// Types here carry no behaviour beyond construction, lookup and
// formatting. Detection lives in detect, scoring in ml and response in soar.
package core
