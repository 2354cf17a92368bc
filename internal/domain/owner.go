package domain

import "github.com/google/uuid"

// OwnerKind tells which addressing mode a cart owner uses.
type OwnerKind int

const (
	OwnerNone OwnerKind = iota
	OwnerCustomer
	OwnerSession
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerCustomer:
		return "customer"
	case OwnerSession:
		return "session"
	default:
		return "none"
	}
}

// Owner identifies who a cart belongs to: either an authenticated customer
// or an anonymous session token, never both. The zero value owns nothing.
type Owner struct {
	kind    OwnerKind
	id      string
	session uuid.UUID
}

// CustomerOwner addresses a cart by authenticated customer id.
func CustomerOwner(customerID string) Owner {
	return Owner{kind: OwnerCustomer, id: customerID}
}

// SessionOwner addresses a cart by anonymous session token.
func SessionOwner(token uuid.UUID) Owner {
	return Owner{kind: OwnerSession, session: token, id: token.String()}
}

func (o Owner) Kind() OwnerKind { return o.kind }

// IsZero reports whether the owner was never set.
func (o Owner) IsZero() bool { return o.kind == OwnerNone }

// CustomerID returns the customer id and true for customer owners.
func (o Owner) CustomerID() (string, bool) {
	if o.kind != OwnerCustomer {
		return "", false
	}
	return o.id, true
}

// SessionToken returns the session token and true for anonymous owners.
func (o Owner) SessionToken() (uuid.UUID, bool) {
	if o.kind != OwnerSession {
		return uuid.Nil, false
	}
	return o.session, true
}

// Key is a stable string used for lock keys and logging, e.g. "customer:42".
func (o Owner) Key() string {
	return o.kind.String() + ":" + o.id
}

func (o Owner) String() string { return o.Key() }
