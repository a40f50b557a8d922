package enums

// ItemStatus controls whether an item can be browsed and booked.
type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "active"
	ItemStatusInactive ItemStatus = "inactive"
)

var itemStatuses = []ItemStatus{ItemStatusActive, ItemStatusInactive}

func (s ItemStatus) String() string { return string(s) }

func (s ItemStatus) IsValid() bool { return known(s, itemStatuses) }
