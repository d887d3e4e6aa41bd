// Package perio describes the periodic transforms of a mesh. Transforms are
// kept in an ordered list where entries 2k and 2k+1 are a direct/reverse
// pair (each is the other's inverse). Interface transform indexes use
// 1-based transform ids, with id 0 meaning "no transform"; the id of the
// transform stored at list position t is therefore t+1 in that context.
package perio

// Kind classifies a periodic transform
type Kind int

const (
	Translation Kind = iota
	Rotation
	Mixed // composition of a translation and a rotation
)

func (k Kind) String() string {
	switch k {
	case Translation:
		return "translation"
	case Rotation:
		return "rotation"
	case Mixed:
		return "mixed"
	}
	return "invalid"
}

// Periodicity is an ordered list of periodic transforms.
// The zero value is an empty periodicity with no transforms.
type Periodicity struct {
	kinds []Kind
}

// New returns an empty periodicity descriptor.
func New() *Periodicity {
	return &Periodicity{}
}

// AddTranslation appends a direct/reverse translation pair and returns the
// list position of the direct transform.
func (p *Periodicity) AddTranslation() int {
	return p.add(Translation)
}

// AddRotation appends a direct/reverse rotation pair and returns the list
// position of the direct transform.
func (p *Periodicity) AddRotation() int {
	return p.add(Rotation)
}

func (p *Periodicity) add(k Kind) int {
	id := len(p.kinds)
	p.kinds = append(p.kinds, k, k)
	return id
}

// NumTransforms returns the number of transforms, reverse ones included.
func (p *Periodicity) NumTransforms() int {
	if p == nil {
		return 0
	}
	return len(p.kinds)
}

// KindOf returns the kind of the transform at list position t.
func (p *Periodicity) KindOf(t int) Kind {
	return p.kinds[t]
}

// ReverseID returns the list position of the inverse of transform t.
func ReverseID(t int) int {
	return t ^ 1
}

// IsReverse reports whether list position t holds the reverse member of
// its pair.
func IsReverse(t int) bool {
	return t&1 == 1
}

// HasRotation reports whether any transform involves a rotation.
func (p *Periodicity) HasRotation() bool {
	if p == nil {
		return false
	}
	for _, k := range p.kinds {
		if k != Translation {
			return true
		}
	}
	return false
}

// HasTranslation reports whether any pure translation is present.
func (p *Periodicity) HasTranslation() bool {
	if p == nil {
		return false
	}
	for _, k := range p.kinds {
		if k == Translation {
			return true
		}
	}
	return false
}
