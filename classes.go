package geoai

// ClassKind selects the comparison and fusion rules used for a class.
type ClassKind int

const (
	PolygonClass ClassKind = iota
	PointClass
	RoadClass
)

func (k ClassKind) String() string {
	switch k {
	case PointClass:
		return "point"
	case RoadClass:
		return "road"
	}
	return "polygon"
}

// DefaultStuffClasses are the classes treated as surfaces rather than
// discrete objects.
var DefaultStuffClasses = []string{"roads", "tracks"}

// classKinds maps class names with a non polygon kind. Classes missing from
// the table are polygons.
var classKinds = map[string]ClassKind{
	"palm_tree":    PointClass,
	"trees_solo":   PointClass,
	"Lights pole":  PointClass,
	"traffic_sign": PointClass,
	"signboard":    PointClass,
	"roads":        RoadClass,
	"tracks":       RoadClass,
}

// ClassKindOf returns the kind registered for name. The second value is
// false when the class is not in the table and the polygon default applies.
func ClassKindOf(name string) (ClassKind, bool) {
	k, ok := classKinds[name]

	if !ok {
		return PolygonClass, false
	}

	return k, true
}

// IsStuff reports whether name is one of the stuff classes.
func IsStuff(name string, stuff []string) bool {
	for _, s := range stuff {
		if s == name {
			return true
		}
	}
	return false
}
