// Package sponsor manages the fixed-slot and cluster-bound sponsor manifest:
// three moon slots, eighteen billboard slots, and per-cluster bindings.
// Mutations persist to a JSON manifest, bake pattern images to on-disk PNGs,
// and push the fresh view to the game room through a reload hook.
package sponsor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"tankwar/internal/config"
	"tankwar/internal/game"
)

// Slot kinds accepted by the store and the admin REST.
const (
	KindMoon      = "moon"
	KindBillboard = "billboard"
	KindCluster   = "cluster"
)

// Fixed slot counts. Moons are the three orbiting bodies, billboards the
// numbered panels around the station ring.
const (
	MoonSlots      = 3
	BillboardSlots = 18
)

const maxPatternBytes = 1 << 20

var (
	ErrUnknownKind    = errors.New("unknown sponsor kind")
	ErrSlotOutOfRange = errors.New("sponsor slot out of range")
	ErrEmptySlot      = errors.New("sponsor slot is empty")
	ErrUnknownCluster = errors.New("unknown cluster")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Sponsor is one manifest entry. PatternImage holds the uploaded base64
// payload; PatternURL points at the baked PNG and is what clients consume.
type Sponsor struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PatternImage string `json:"patternImage,omitempty"`
	PatternURL   string `json:"patternUrl,omitempty"`
}

// Stripped returns a listing copy without the base64 payload.
func (s Sponsor) Stripped() Sponsor {
	s.PatternImage = ""
	return s
}

// ValidationError lists every problem found with a sponsor payload so the
// admin UI can show them all at once.
type ValidationError struct {
	Problems []string `json:"errors"`
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// ReloadFunc receives the fresh slot view plus the cluster id to sponsor id
// map after every mutation.
type ReloadFunc func(infos []game.SponsorInfo, clusters map[int]string)

// Store guards the manifest with its own mutex. It is the only game state
// mutated outside the tick loop; the room only ever sees value snapshots
// delivered through the reload hook.
type Store struct {
	mu sync.Mutex

	manifestPath string
	textureDir   string
	urlBase      string
	clusterCount int

	moons      [MoonSlots]*Sponsor
	billboards [BillboardSlots]*Sponsor
	clusters   map[int]*Sponsor

	reload ReloadFunc
}

// manifest is the on-disk shape of sponsors.json. Slot arrays keep their
// fixed length with nulls for empty slots so the file is hand-editable.
type manifest struct {
	Moons      []*Sponsor       `json:"moons"`
	Billboards []*Sponsor       `json:"billboards"`
	Clusters   map[int]*Sponsor `json:"clusters,omitempty"`
}

// NewStore builds a store over the configured paths. clusterCount bounds
// cluster bindings to real clusters of the generated planet.
func NewStore(cfg config.StoreConfig, clusterCount int) *Store {
	return &Store{
		manifestPath: cfg.SponsorManifest,
		textureDir:   cfg.TextureDir,
		urlBase:      cfg.TextureURLBase,
		clusterCount: clusterCount,
		clusters:     make(map[int]*Sponsor),
	}
}

// SetReloadHook installs the function called after every mutation. The room
// enqueues the view and applies it at its next tick boundary.
func (st *Store) SetReloadHook(fn ReloadFunc) {
	st.mu.Lock()
	st.reload = fn
	st.mu.Unlock()
}

// Load reads the manifest and bakes every stored pattern so each PatternURL
// points at a file that exists before any client can be told about it.
// A missing manifest is a fresh install, not an error.
func (st *Store) Load() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	raw, err := os.ReadFile(st.manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sponsor manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("parse sponsor manifest: %w", err)
	}

	for i := 0; i < MoonSlots && i < len(m.Moons); i++ {
		st.moons[i] = m.Moons[i]
	}
	for i := 0; i < BillboardSlots && i < len(m.Billboards); i++ {
		st.billboards[i] = m.Billboards[i]
	}
	for ci, sp := range m.Clusters {
		if sp != nil && ci >= 0 && ci < st.clusterCount {
			st.clusters[ci] = sp
		}
	}

	for i, sp := range st.moons {
		if sp != nil {
			if err := st.bake(slotKey(KindMoon, i), sp); err != nil {
				return err
			}
		}
	}
	for i, sp := range st.billboards {
		if sp != nil {
			if err := st.bake(slotKey(KindBillboard, i), sp); err != nil {
				return err
			}
		}
	}
	for ci, sp := range st.clusters {
		if err := st.bake(slotKey(KindCluster, ci), sp); err != nil {
			return err
		}
	}
	return nil
}

// GetAll returns the full slot array for a kind, nil entries for empty
// slots, so the admin UI renders every slot in place.
func (st *Store) GetAll(kind string) ([]*Sponsor, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	slots, err := st.slots(kind)
	if err != nil {
		return nil, err
	}
	out := make([]*Sponsor, len(slots))
	for i, sp := range slots {
		if sp != nil {
			cp := *sp
			out[i] = &cp
		}
	}
	return out, nil
}

// GetByIndex returns one slot. Empty slots report ErrEmptySlot.
func (st *Store) GetByIndex(kind string, i int) (*Sponsor, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	slots, err := st.slots(kind)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(slots) {
		return nil, ErrSlotOutOfRange
	}
	if slots[i] == nil {
		return nil, ErrEmptySlot
	}
	cp := *slots[i]
	return &cp, nil
}

// Assign validates, bakes and stores a sponsor in a fixed slot, then fires
// the reload hook. The returned copy carries the computed PatternURL.
func (st *Store) Assign(kind string, i int, s Sponsor) (*Sponsor, error) {
	out, err := st.assign(kind, i, s)
	if err != nil {
		return nil, err
	}
	st.notify()
	return out, nil
}

func (st *Store) assign(kind string, i int, s Sponsor) (*Sponsor, error) {
	if err := validate(s); err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	slots, err := st.slots(kind)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(slots) {
		return nil, ErrSlotOutOfRange
	}
	stored := s
	if err := st.bake(slotKey(kind, i), &stored); err != nil {
		return nil, err
	}
	slots[i] = &stored
	if err := st.persist(); err != nil {
		return nil, err
	}
	cp := stored
	return &cp, nil
}

// Clear empties a fixed slot. Clearing an already empty slot is an error so
// the REST layer can answer 404.
func (st *Store) Clear(kind string, i int) error {
	if err := st.clear(kind, i); err != nil {
		return err
	}
	st.notify()
	return nil
}

func (st *Store) clear(kind string, i int) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	slots, err := st.slots(kind)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(slots) {
		return ErrSlotOutOfRange
	}
	if slots[i] == nil {
		return ErrEmptySlot
	}
	slots[i] = nil
	return st.persist()
}

// ClusterAll returns every cluster binding.
func (st *Store) ClusterAll() map[int]*Sponsor {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[int]*Sponsor, len(st.clusters))
	for ci, sp := range st.clusters {
		cp := *sp
		out[ci] = &cp
	}
	return out
}

// GetCluster returns the binding for one cluster, ErrEmptySlot when none.
func (st *Store) GetCluster(clusterID int) (*Sponsor, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if clusterID < 0 || clusterID >= st.clusterCount {
		return nil, ErrUnknownCluster
	}
	sp, ok := st.clusters[clusterID]
	if !ok {
		return nil, ErrEmptySlot
	}
	cp := *sp
	return &cp, nil
}

// AssignCluster binds a sponsor to a cluster, making it uncapturable while
// the binding stands.
func (st *Store) AssignCluster(clusterID int, s Sponsor) (*Sponsor, error) {
	out, err := st.assignCluster(clusterID, s)
	if err != nil {
		return nil, err
	}
	st.notify()
	return out, nil
}

func (st *Store) assignCluster(clusterID int, s Sponsor) (*Sponsor, error) {
	if err := validate(s); err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if clusterID < 0 || clusterID >= st.clusterCount {
		return nil, ErrUnknownCluster
	}
	stored := s
	if err := st.bake(slotKey(KindCluster, clusterID), &stored); err != nil {
		return nil, err
	}
	st.clusters[clusterID] = &stored
	if err := st.persist(); err != nil {
		return nil, err
	}
	cp := stored
	return &cp, nil
}

// ClearCluster removes a cluster binding; the cluster becomes capturable
// again at the room's next tick.
func (st *Store) ClearCluster(clusterID int) error {
	if err := st.clearCluster(clusterID); err != nil {
		return err
	}
	st.notify()
	return nil
}

func (st *Store) clearCluster(clusterID int) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if clusterID < 0 || clusterID >= st.clusterCount {
		return ErrUnknownCluster
	}
	if _, ok := st.clusters[clusterID]; !ok {
		return ErrEmptySlot
	}
	delete(st.clusters, clusterID)
	return st.persist()
}

// Infos returns the room-facing view: baked-URL slot entries plus the
// cluster id to sponsor id map used to stamp the world.
func (st *Store) Infos() ([]game.SponsorInfo, map[int]string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.infosLocked()
}

func (st *Store) infosLocked() ([]game.SponsorInfo, map[int]string) {
	var infos []game.SponsorInfo
	for i, sp := range st.moons {
		if sp != nil {
			infos = append(infos, game.SponsorInfo{ID: sp.ID, Name: sp.Name, Kind: KindMoon, Slot: i, PatternURL: sp.PatternURL})
		}
	}
	for i, sp := range st.billboards {
		if sp != nil {
			infos = append(infos, game.SponsorInfo{ID: sp.ID, Name: sp.Name, Kind: KindBillboard, Slot: i, PatternURL: sp.PatternURL})
		}
	}
	ids := make([]int, 0, len(st.clusters))
	for ci := range st.clusters {
		ids = append(ids, ci)
	}
	sort.Ints(ids)
	clusters := make(map[int]string, len(ids))
	for _, ci := range ids {
		sp := st.clusters[ci]
		infos = append(infos, game.SponsorInfo{ID: sp.ID, Name: sp.Name, Kind: KindCluster, ClusterID: ci, PatternURL: sp.PatternURL})
		clusters[ci] = sp.ID
	}
	return infos, clusters
}

func (st *Store) notify() {
	st.mu.Lock()
	fn := st.reload
	infos, clusters := st.infosLocked()
	st.mu.Unlock()
	if fn != nil {
		fn(infos, clusters)
	}
}

func (st *Store) slots(kind string) ([]*Sponsor, error) {
	switch kind {
	case KindMoon:
		return st.moons[:], nil
	case KindBillboard:
		return st.billboards[:], nil
	}
	return nil, ErrUnknownKind
}

func slotKey(kind string, i int) string {
	return kind + strconv.Itoa(i)
}

// bake writes the sponsor's pattern PNG and fills in PatternURL. Sponsors
// without an uploaded image get a generated placeholder tile.
func (st *Store) bake(key string, sp *Sponsor) error {
	dst := filepath.Join(st.textureDir, key+".png")
	img, err := patternImage(sp)
	if err != nil {
		return err
	}
	if err := writePNG(dst, pixelate(img)); err != nil {
		return fmt.Errorf("bake sponsor texture %s: %w", key, err)
	}
	sp.PatternURL = strings.TrimRight(st.urlBase, "/") + "/" + key + ".png"
	return nil
}

// persist writes the manifest via temp file and rename so a crash mid-write
// never truncates it. Caller holds the lock.
func (st *Store) persist() error {
	m := manifest{
		Moons:      st.moons[:],
		Billboards: st.billboards[:],
		Clusters:   st.clusters,
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(st.manifestPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".sponsors-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), st.manifestPath)
}

func validate(s Sponsor) error {
	var problems []string
	switch {
	case s.ID == "":
		problems = append(problems, "id is required")
	case !idPattern.MatchString(s.ID):
		problems = append(problems, "id may only contain letters, digits, '-' and '_'")
	}
	switch {
	case s.Name == "":
		problems = append(problems, "name is required")
	case len(s.Name) > 64:
		problems = append(problems, "name is longer than 64 characters")
	}
	if s.PatternImage != "" {
		if raw, err := decodePattern(s.PatternImage); err != nil {
			problems = append(problems, "patternImage is not valid base64")
		} else if len(raw) > maxPatternBytes {
			problems = append(problems, "patternImage exceeds 1 MiB decoded")
		} else if err := checkImage(raw); err != nil {
			problems = append(problems, "patternImage is not a decodable image")
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
