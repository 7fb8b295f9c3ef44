package core

import "dhtcode-go/bus"

// Opaque-topic helpers

func T(tokens ...bus.Token) bus.Topic { return bus.T(tokens...) }

func topicConfigHAL() bus.Topic { return T("config", "hal") }
func topicHALState() bus.Topic  { return T("hal", "state") }

// hal/cap/<domain>/<kind>/<name>/...
func capBase(a CapAddr) bus.Topic { return T("hal", "cap", a.Domain, a.Kind, a.Name) }

func capInfo(a CapAddr) bus.Topic   { return capBase(a).Append("info") }
func capStatus(a CapAddr) bus.Topic { return capBase(a).Append("status") }
func capValue(a CapAddr) bus.Topic  { return capBase(a).Append("value") }
func capEvent(a CapAddr) bus.Topic  { return capBase(a).Append("event") }

// hal/cap/+/+/+/control/+
func ctrlWildcard() bus.Topic {
	return T("hal", "cap", "+", "+", "+", "control", "+")
}

// CtrlTopic returns hal/cap/<domain>/<kind>/<name>/control/<verb>.
func CtrlTopic(a CapAddr, verb string) bus.Topic { return capBase(a).Append("control", verb) }

// ValueTopic and StatusTopic are the retained outputs other services follow.
func ValueTopic(a CapAddr) bus.Topic  { return capValue(a) }
func StatusTopic(a CapAddr) bus.Topic { return capStatus(a) }
