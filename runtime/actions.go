//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package runtime

import "github.com/kestrel-ai/copilot-runtime/action"

// ActionDescriptor is the wire shape a client sends in a chat request's
// `actions` field: a tool the client itself will execute, or declares
// disabled for this turn.
type ActionDescriptor struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Parameters   []action.Parameter  `json:"parameters"`
	Availability action.Availability `json:"availability,omitempty"`
}

// ToAction builds the action.Action a client descriptor represents. It
// never carries a Handler: the pipeline routes its calls to the client
// instead of executing them server-side.
func (d ActionDescriptor) ToAction() *action.Action {
	avail := d.Availability
	if avail == "" {
		avail = action.AvailabilityEnabled
	}
	return &action.Action{
		Name:         d.Name,
		Description:  d.Description,
		Parameters:   d.Parameters,
		Availability: avail,
	}
}

// ResolveActionSet merges, in precedence order, runtime-level server
// actions, request-time client-declared actions, and remote-endpoint-
// discovered actions, deduplicating by name and keeping the first
// occurrence (server-side wins over client-side wins over remote). Client
// actions declared unavailable are dropped.
func ResolveActionSet(serverActions []*action.Action, clientDescriptors []ActionDescriptor, remoteActions []*action.Action) (byName map[string]*action.Action, ordered []*action.Action) {
	byName = make(map[string]*action.Action, len(serverActions)+len(clientDescriptors)+len(remoteActions))
	for _, a := range serverActions {
		if _, exists := byName[a.Name]; exists {
			continue
		}
		byName[a.Name] = a
		ordered = append(ordered, a)
	}
	for _, d := range clientDescriptors {
		if d.Availability == action.AvailabilityDisabled {
			continue
		}
		if _, exists := byName[d.Name]; exists {
			continue
		}
		a := d.ToAction()
		byName[a.Name] = a
		ordered = append(ordered, a)
	}
	for _, a := range remoteActions {
		if a == nil {
			continue
		}
		if _, exists := byName[a.Name]; exists {
			continue
		}
		byName[a.Name] = a
		ordered = append(ordered, a)
	}
	return byName, ordered
}
