package document

// DefaultTitle is the forum title used when no settings have been saved.
const DefaultTitle = "OP.WEB"

// Record is one opaque entry of a collection. The core never interprets
// record fields; domain code decodes them into its own types.
type Record = map[string]any

// Settings is the single settings record of the tree.
type Settings struct {
	Title string `json:"title"`
	Logo  string `json:"logo"`
}

// DefaultSettings returns the settings used for a fresh tree.
func DefaultSettings() Settings {
	return Settings{Title: DefaultTitle, Logo: ""}
}

// Tree is the whole application state, read and written as one unit.
type Tree struct {
	Users           []Record  `json:"users"`
	Sections        []Record  `json:"sections"`
	Threads         []Record  `json:"threads"`
	Posts           []Record  `json:"posts"`
	Complaints      []Record  `json:"complaints"`
	Bans            []Record  `json:"bans"`
	Logs            []Record  `json:"logs"`
	ArchivedThreads []Record  `json:"archivedThreads"`
	Chats           []Record  `json:"chats"`
	Messages        []Record  `json:"messages"`
	Settings        *Settings `json:"settings"`
}

// NewTree returns a tree with every collection present and empty.
func NewTree() *Tree {
	t := &Tree{}
	t.Materialize()
	return t
}

// Materialize fills in every absent collection with its empty value and a
// missing settings record with DefaultSettings, so callers never branch on
// a missing collection.
func (t *Tree) Materialize() {
	for _, c := range t.collections() {
		if *c == nil {
			*c = []Record{}
		}
	}
	if t.Settings == nil {
		s := DefaultSettings()
		t.Settings = &s
	}
}

// Counts returns the number of records per collection, keyed by the JSON
// collection name.
func (t *Tree) Counts() map[string]int {
	names := collectionNames()
	out := make(map[string]int, len(names))
	for i, c := range t.collections() {
		out[names[i]] = len(*c)
	}
	return out
}

func (t *Tree) collections() []*[]Record {
	return []*[]Record{
		&t.Users, &t.Sections, &t.Threads, &t.Posts, &t.Complaints,
		&t.Bans, &t.Logs, &t.ArchivedThreads, &t.Chats, &t.Messages,
	}
}

func collectionNames() []string {
	return []string{
		"users", "sections", "threads", "posts", "complaints",
		"bans", "logs", "archivedThreads", "chats", "messages",
	}
}
