package domain

// Kind names a cached resource family. Tags are scoped by kind so an
// Order:LIST invalidation never touches account entries.
type Kind string

const (
	KindOrder   Kind = "Order"
	KindAccount Kind = "Account"
)

// ListID is the pseudo-id marking "any listing of this kind". Every entry
// returned by a list query carries the list tag in addition to its own
// identity tag, so one new item invalidates both views.
const ListID = "LIST"

// Tag labels a cache entry with a dependency group.
type Tag struct {
	Kind Kind
	ID   string
}

func (t Tag) String() string { return string(t.Kind) + ":" + t.ID }

func OrderTag(id string) Tag   { return Tag{Kind: KindOrder, ID: id} }
func AccountTag(id string) Tag { return Tag{Kind: KindAccount, ID: id} }

func OrderListTag() Tag { return Tag{Kind: KindOrder, ID: ListID} }
