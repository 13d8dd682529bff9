package shardstore

// reservedTrie is a set-membership-only trie over the fixed set of names
// the façade routes to its own API instead of to the data store. The
// reference implementation builds a full Aho-Corasick trie for this and
// only ever calls its membership test; this keeps the trie shape (child
// transitions keyed by byte) without the multi-pattern search machinery,
// since nothing here ever searches for reserved names as substrings of a
// larger text.
type reservedTrie struct {
	children map[byte]*reservedTrie
	terminal bool
}

func newReservedTrie() *reservedTrie {
	return &reservedTrie{children: make(map[byte]*reservedTrie)}
}

func (t *reservedTrie) insert(name string) {
	node := t
	for i := 0; i < len(name); i++ {
		b := name[i]
		child := node.children[b]
		if child == nil {
			child = newReservedTrie()
			node.children[b] = child
		}
		node = child
	}
	node.terminal = true
}

func (t *reservedTrie) contains(name string) bool {
	node := t
	for i := 0; i < len(name); i++ {
		child := node.children[name[i]]
		if child == nil {
			return false
		}
		node = child
	}
	return node.terminal
}

// reservedNames are the store-API method names; a client binding that
// consults IsReserved routes a name in this set to its own method instead
// of to the shard index. Store itself does not check them: Put and Get
// store and return these names like any other key. Host-language machinery names from the reference (valueOf,
// toString, propertyIsEnumerable) are dropped: this port has no
// property-bag façade for them to disambiguate.
var reservedNames = []string{
	"close",
	"isClosed",
	"isOpen",
	"writeLock",
	"writeUnlock",
	"get_free_memory",
	"get_size",
	"bucket_count",
	"max_bucket_count",
	"load_factor",
	"max_load_factor",
	"fileFormatVersion",
	"remove_shared_mutex",
}

var reservedTrieInstance = buildReservedTrie()

func buildReservedTrie() *reservedTrie {
	t := newReservedTrie()
	for _, name := range reservedNames {
		t.insert(name)
	}
	return t
}

// IsReserved reports whether name is one of the store's own API names
// rather than a data key. Store never consults it and stores reserved
// names like any other key; a client binding built on top of Store is
// expected to consult this before
// deciding whether a property access is a method call or a Get/Put.
func IsReserved(name string) bool {
	return reservedTrieInstance.contains(name)
}
