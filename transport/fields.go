package transport

// Fields is the field list of one entry, flattened as key, value, key,
// value... in the order they travel on the wire.
type Fields []string

// NewFields builds Fields from alternating keys and values.
func NewFields(kv ...string) Fields {
	if len(kv)%2 != 0 {
		kv = append(kv, "")
	}
	return Fields(kv)
}

// Len is the number of key/value pairs.
func (f Fields) Len() int {
	return len(f) / 2
}

// Get returns the value of the first field named key.
func (f Fields) Get(key string) (string, bool) {
	for i := 0; i+1 < len(f); i += 2 {
		if f[i] == key {
			return f[i+1], true
		}
	}
	return "", false
}

// Value is Get without the presence flag.
func (f Fields) Value(key string) string {
	v, _ := f.Get(key)
	return v
}

// Set replaces the value of key or appends the pair.
func (f Fields) Set(key, value string) Fields {
	for i := 0; i+1 < len(f); i += 2 {
		if f[i] == key {
			f[i+1] = value
			return f
		}
	}
	return append(f, key, value)
}

// Map copies the fields into a map. Later duplicates win.
func (f Fields) Map() map[string]string {
	m := make(map[string]string, len(f)/2)
	for i := 0; i+1 < len(f); i += 2 {
		m[f[i]] = f[i+1]
	}
	return m
}

// Clone returns a copy that does not share storage with f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	c := make(Fields, len(f))
	copy(c, f)
	return c
}
