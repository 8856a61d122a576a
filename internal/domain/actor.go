package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type ContextKey string

// ActorContextKey holds the authenticated *Actor on request contexts.
const ActorContextKey ContextKey = "actor"

// ActorKind tags who performed an action.
type ActorKind string

const (
	ActorClient   ActorKind = "client"
	ActorProvider ActorKind = "provider"
	ActorSystem   ActorKind = "system"
)

// Actor is a tagged reference to a client, a provider or the platform itself.
// System actors carry uuid.Nil unless an admin identity is known.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func ClientActor(id uuid.UUID) Actor   { return Actor{Kind: ActorClient, ID: id} }
func ProviderActor(id uuid.UUID) Actor { return Actor{Kind: ActorProvider, ID: id} }
func SystemActor(id uuid.UUID) Actor   { return Actor{Kind: ActorSystem, ID: id} }

// Validate checks that the tag is known and that client/provider actors carry an ID.
func (a Actor) Validate() error {
	switch a.Kind {
	case ActorClient, ActorProvider:
		if a.ID == uuid.Nil {
			return &ValidationError{Field: "actor", Reason: fmt.Sprintf("%s actor requires an id", a.Kind)}
		}
		return nil
	case ActorSystem:
		return nil
	default:
		return &ValidationError{Field: "actor", Reason: fmt.Sprintf("unknown actor kind %q", a.Kind)}
	}
}

func (a Actor) String() string {
	if a.Kind == ActorSystem && a.ID == uuid.Nil {
		return string(ActorSystem)
	}
	return string(a.Kind) + ":" + a.ID.String()
}

// ParseActorKind maps a token role onto an actor kind. Admins act as the system.
func ParseActorKind(role string) (ActorKind, bool) {
	switch role {
	case "client":
		return ActorClient, true
	case "provider", "ca":
		return ActorProvider, true
	case "admin", "system":
		return ActorSystem, true
	}
	return "", false
}
