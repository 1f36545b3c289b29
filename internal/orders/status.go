package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// AllStatuses is ordered along the lifecycle, cancelled last.
var AllStatuses = []Status{StatusPending, StatusAccepted, StatusShipped, StatusDelivered, StatusCancelled}

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

type Actor string

const (
	ActorBuyer  Actor = "buyer"
	ActorSeller Actor = "seller"
)

// Edge is one legal transition together with the actors allowed to trigger it.
type Edge struct {
	From   Status
	To     Status
	Actors []Actor
	// ReleasesStock marks the edge whose effect returns the order quantity to the book.
	ReleasesStock bool
}

func (e Edge) Allows(a Actor) bool {
	for _, x := range e.Actors {
		if x == a {
			return true
		}
	}
	return false
}

var validNext = map[Status]map[Status]Edge{
	StatusPending: {
		StatusAccepted:  {From: StatusPending, To: StatusAccepted, Actors: []Actor{ActorSeller}},
		StatusCancelled: {From: StatusPending, To: StatusCancelled, Actors: []Actor{ActorBuyer, ActorSeller}, ReleasesStock: true},
	},
	StatusAccepted:  {StatusShipped: {From: StatusAccepted, To: StatusShipped, Actors: []Actor{ActorSeller}}},
	StatusShipped:   {StatusDelivered: {From: StatusShipped, To: StatusDelivered, Actors: []Actor{ActorSeller}}},
	StatusDelivered: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	_, ok := validNext[from][to]
	return ok
}

// Lookup returns the edge from -> to, if one exists.
func Lookup(from, to Status) (Edge, bool) {
	e, ok := validNext[from][to]
	return e, ok
}

// NextStates lists the states reachable in one step from s.
func NextStates(s Status) []Status {
	var out []Status
	for _, to := range AllStatuses {
		if CanTransition(s, to) {
			out = append(out, to)
		}
	}
	return out
}
