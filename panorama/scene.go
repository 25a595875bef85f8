// Package panorama localizes objects detected on the cubic faces of 360°
// panoramas in a LiDAR point cloud.
//
// Each face image is posed from the vehicle trajectory, the visible part of
// the cloud is projected onto it and the points falling inside a detection
// mask are attributed to the detected class. Per scene, the attributed points
// of every class are clustered and each cluster becomes one object.
package panorama

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/log"
	"go.uber.org/zap"
)

const logTag = "panorama: "

// Face is the index of a cubic projection face
type Face int

const (
	FaceBack Face = iota
	FaceLeft
	FaceFront
	FaceRight
	FaceTop
	FaceBottom
)

// Image is one face image of a panorama
type Image struct {
	Path string
	// Name is the file name without extension
	Name  string
	Scene int
	Num   int
	Face  Face
}

// Scene is a directory of panorama faces with their trajectory and an
// optional point cloud
type Scene struct {
	Dir        string
	Num        int
	Images     []Image
	Trajectory string
	// LAS is empty when the scene has no point cloud
	LAS string
}

// NameMatcher extracts the scene, image and face numbers of an image name
type NameMatcher struct {
	re *regexp.Regexp
	// groups maps scene, image and face to their submatch index
	groups [3]int
}

var placeholder = regexp.MustCompile(`\{([0-2])(:[^}]*)?\}`)

// NewNameMatcher compiles a pattern that is either a regular expression with
// three groups capturing scene, image and face in that order, or a template
// with {0}, {1} and {2} placeholders for them.
func NewNameMatcher(pattern string) (*NameMatcher, error) {

	if !placeholder.MatchString(pattern) {
		re, err := regexp.Compile(pattern)

		if err != nil {
			return nil, geoai.NewError(geoai.BadInput, "panorama.NewNameMatcher", err)
		}

		if re.NumSubexp() != 3 {
			return nil, geoai.Errorf(geoai.BadInput, "panorama.NewNameMatcher",
				"pattern %q must capture scene, image and face", pattern)
		}

		return &NameMatcher{re: re, groups: [3]int{1, 2, 3}}, nil
	}

	var (
		b      strings.Builder
		groups [3]int
		seen   int
		last   int
	)

	b.WriteString("^")

	for _, loc := range placeholder.FindAllStringSubmatchIndex(pattern, -1) {
		b.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		b.WriteString(`(\d+)`)

		idx, _ := strconv.Atoi(pattern[loc[2]:loc[3]])
		seen++
		groups[idx] = seen
		last = loc[1]
	}

	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString("$")

	if seen != 3 || groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		return nil, geoai.Errorf(geoai.BadInput, "panorama.NewNameMatcher",
			"template %q must hold {0}, {1} and {2} once each", pattern)
	}

	return &NameMatcher{re: regexp.MustCompile(b.String()), groups: groups}, nil
}

// Parse returns the scene, image and face numbers of a file name
func (m *NameMatcher) Parse(name string) (scene, image int, face Face, ok bool) {

	sub := m.re.FindStringSubmatch(name)

	if sub == nil {
		return 0, 0, 0, false
	}

	var nums [3]int

	for i, g := range m.groups {
		n, err := strconv.Atoi(sub[g])

		if err != nil {
			return 0, 0, 0, false
		}

		nums[i] = n
	}

	if nums[2] < int(FaceBack) || nums[2] > int(FaceBottom) {
		return 0, 0, 0, false
	}

	return nums[0], nums[1], Face(nums[2]), true
}

// Discover finds the scenes under root. A directory holding matching images
// is a scene, root itself included. Every scene needs a trajectory CSV, the
// first LAS file found is its point cloud.
func Discover(root string, m *NameMatcher) ([]Scene, error) {

	var scenes []Scene

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {

		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		scene, ok, err := readScene(path, m)

		if err != nil {
			return err
		}

		if ok {
			scenes = append(scenes, scene)
		}

		return nil
	})

	if err != nil {
		if geoai.KindOf(err) != geoai.KindUnknown {
			return nil, err
		}
		return nil, geoai.NewError(geoai.BadInput, "panorama.Discover", err)
	}

	if len(scenes) == 0 {
		return nil, geoai.Errorf(geoai.EmptyInput, "panorama.Discover", "no panorama images under %s", root)
	}

	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Dir < scenes[j].Dir })

	return scenes, nil
}

// readScene lists one directory, ok is false when it has no panorama image
func readScene(dir string, m *NameMatcher) (Scene, bool, error) {

	entries, err := os.ReadDir(dir)

	if err != nil {
		return Scene{}, false, err
	}

	scene := Scene{Dir: dir, Num: -1}

	// entries are sorted by file name
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))

		switch ext {
		case ".csv":
			if scene.Trajectory == "" {
				scene.Trajectory = filepath.Join(dir, name)
			}

		case ".las":
			if scene.LAS == "" {
				scene.LAS = filepath.Join(dir, name)
			}

		case ".jpg", ".jpeg":
			sc, num, face, ok := m.Parse(name)

			if !ok {
				log.Debug(logTag+"skipping image not matching pattern", zap.String("file", name))
				continue
			}

			if scene.Num < 0 {
				scene.Num = sc
			}

			scene.Images = append(scene.Images, Image{
				Path:  filepath.Join(dir, name),
				Name:  strings.TrimSuffix(name, filepath.Ext(name)),
				Scene: sc,
				Num:   num,
				Face:  face,
			})
		}
	}

	if len(scene.Images) == 0 {
		return Scene{}, false, nil
	}

	// a numeric directory name is the scene number
	if n, err := strconv.Atoi(filepath.Base(dir)); err == nil {
		scene.Num = n
	}

	if scene.Trajectory == "" {
		return Scene{}, false, geoai.Errorf(geoai.BadInput, "panorama.Discover",
			"scene %s has no trajectory file", dir)
	}

	if scene.LAS == "" {
		log.Warn(logTag+"scene without point cloud, objects are placed at the camera",
			zap.String("scene", dir))
	}

	return scene, true, nil
}

// TrajectoryKey is the trajectory file name of an image of a scene
func TrajectoryKey(scene, image int) string {
	return fmt.Sprintf("pano_%06d_%06d", scene, image)
}
