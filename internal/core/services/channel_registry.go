package services

import (
	"fmt"

	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/pkg/validation"
)

// CapabilitiesFunc reports the policy in force when a subchannel is created.
type CapabilitiesFunc func() domain.Capabilities

// ChannelForgetter discards per-channel state for removed channels.
type ChannelForgetter interface {
	Forget(ids ...domain.ChannelID)
}

type channelEntry struct {
	id    domain.ChannelID
	input domain.InputSelection
}

type groupEntry struct {
	id       domain.GroupID
	name     string
	channels []*channelEntry // channels[0] is the primary
}

// ChannelRegistry owns the ordered local channel groups. Group indices are
// positions in the slice; channel and group ids are allocated monotonically
// and never reused.
type ChannelRegistry struct {
	groups      []*groupEntry
	owner       map[domain.ChannelID]*groupEntry
	highlighted *groupEntry

	nextGroupID   domain.GroupID
	nextChannelID domain.ChannelID
	version       uint64

	capabilities CapabilitiesFunc
	forgetter    ChannelForgetter
	logger       *zap.SugaredLogger
}

// NewChannelRegistry creates an empty registry. capabilities decides whether
// subchannels may be created; forgetter is told about removed channels.
func NewChannelRegistry(capabilities CapabilitiesFunc, forgetter ChannelForgetter, logger *zap.SugaredLogger) *ChannelRegistry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if capabilities == nil {
		capabilities = func() domain.Capabilities {
			return domain.Capabilities{ViewMode: domain.ViewFull, SubchannelsSupported: true, FullScreenSupported: true}
		}
	}
	return &ChannelRegistry{
		owner:        make(map[domain.ChannelID]*groupEntry),
		capabilities: capabilities,
		forgetter:    forgetter,
		logger:       logger,
	}
}

// AddGroup appends a group with one primary subchannel. Names must be unique.
func (r *ChannelRegistry) AddGroup(name string) (domain.GroupHandle, error) {
	if err := validation.ValidateGroupName(name); err != nil {
		return domain.GroupHandle{}, fmt.Errorf("%w: %v", domain.ErrInvalidName, err)
	}
	if r.indexOfName(name) >= 0 {
		return domain.GroupHandle{}, fmt.Errorf("%w: %q", domain.ErrDuplicateName, name)
	}

	g := r.appendGroup(name)
	r.touch()

	r.logger.Infow("Channel group added", "group_id", g.id, "group_index", len(r.groups)-1, "name", name)
	return domain.GroupHandle{ID: g.id, Index: len(r.groups) - 1, PrimaryID: g.channels[0].id}, nil
}

// RemoveGroup drops the group with all its subchannels. Later groups shift
// down by one.
func (r *ChannelRegistry) RemoveGroup(index int) error {
	g, err := r.groupAt(index)
	if err != nil {
		return err
	}

	r.dropChannels(g.channels...)
	r.groups = append(r.groups[:index], r.groups[index+1:]...)

	if r.highlighted == g {
		r.highlighted = nil
		if len(r.groups) > 0 {
			r.highlighted = r.groups[0]
		}
	}
	r.touch()

	r.logger.Infow("Channel group removed", "group_id", g.id, "group_index", index, "remaining", len(r.groups))
	return nil
}

// AddSubchannel appends a subchannel to the group. With createAsPrimaryIfEmpty
// an empty group gets its primary channel regardless of subchannel policy.
func (r *ChannelRegistry) AddSubchannel(groupIndex int, createAsPrimaryIfEmpty bool) (domain.ChannelID, error) {
	g, err := r.groupAt(groupIndex)
	if err != nil {
		return domain.NoChannel, err
	}

	asPrimary := createAsPrimaryIfEmpty && len(g.channels) == 0
	if !asPrimary && !r.capabilities().CanCreateSubchannels() {
		return domain.NoChannel, fmt.Errorf("add subchannel to group %d: %w", groupIndex, domain.ErrCapabilityDenied)
	}

	ch := r.newChannel(domain.NoInputSelection())
	g.channels = append(g.channels, ch)
	r.owner[ch.id] = g
	r.touch()

	r.logger.Infow("Subchannel added", "group_index", groupIndex, "channel_id", ch.id, "primary", asPrimary)
	return ch.id, nil
}

// RemoveSubchannel removes a non-primary subchannel.
func (r *ChannelRegistry) RemoveSubchannel(id domain.ChannelID) error {
	g, ok := r.owner[id]
	if !ok {
		return fmt.Errorf("channel %d: %w", id, domain.ErrChannelNotFound)
	}
	if g.channels[0].id == id {
		return fmt.Errorf("channel %d: %w", id, domain.ErrPrimarySubchannel)
	}

	for i, ch := range g.channels {
		if ch.id == id {
			g.channels = append(g.channels[:i], g.channels[i+1:]...)
			r.dropChannels(ch)
			break
		}
	}
	r.touch()
	return nil
}

// RenameGroup fails with ErrDuplicateName when another group already uses name.
func (r *ChannelRegistry) RenameGroup(index int, name string) error {
	g, err := r.groupAt(index)
	if err != nil {
		return err
	}
	if err := validation.ValidateGroupName(name); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidName, err)
	}
	if g.name == name {
		return nil
	}
	if r.indexOfName(name) >= 0 {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateName, name)
	}

	g.name = name
	r.touch()
	return nil
}

// ResetGroup brings the group back to a single primary subchannel with no
// input. The primary keeps its identity. It never fails: an invalid index is
// logged and ignored.
func (r *ChannelRegistry) ResetGroup(index int) {
	g, err := r.groupAt(index)
	if err != nil {
		return
	}

	changed := false
	if len(g.channels) == 0 {
		ch := r.newChannel(domain.NoInputSelection())
		g.channels = []*channelEntry{ch}
		r.owner[ch.id] = g
		changed = true
	}
	if len(g.channels) > 1 {
		r.dropChannels(g.channels[1:]...)
		g.channels = g.channels[:1]
		changed = true
	}
	if primary := g.channels[0]; primary.input != domain.NoInputSelection() {
		primary.input = domain.NoInputSelection()
		changed = true
	}

	if changed {
		r.touch()
		r.logger.Infow("Channel group reset", "group_index", index, "group_id", g.id)
	}
}

// SetInput assigns an input source to a subchannel.
func (r *ChannelRegistry) SetInput(id domain.ChannelID, input domain.InputSelection) error {
	ch, _, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("channel %d: %w", id, domain.ErrChannelNotFound)
	}
	if input.IsNoInput() {
		input = domain.NoInputSelection()
	}
	if ch.input == input {
		return nil
	}
	ch.input = input
	r.touch()
	return nil
}

// HighlightGroup marks one group for the UI.
func (r *ChannelRegistry) HighlightGroup(index int) error {
	g, err := r.groupAt(index)
	if err != nil {
		return err
	}
	if r.highlighted != g {
		r.highlighted = g
		r.touch()
	}
	return nil
}

// Highlighted returns the highlighted group index, or -1.
func (r *ChannelRegistry) Highlighted() int {
	if r.highlighted == nil {
		return -1
	}
	for i, g := range r.groups {
		if g == r.highlighted {
			return i
		}
	}
	return -1
}

// GroupCount is never zero once the client has started.
func (r *ChannelRegistry) GroupCount() int {
	return len(r.groups)
}

func (r *ChannelRegistry) GroupName(index int) (string, error) {
	g, err := r.groupAt(index)
	if err != nil {
		return "", err
	}
	return g.name, nil
}

// Groups returns copies; mutating them does not affect the registry.
func (r *ChannelRegistry) Groups() []domain.ChannelGroup {
	out := make([]domain.ChannelGroup, 0, len(r.groups))
	for i, g := range r.groups {
		out = append(out, r.view(i, g))
	}
	return out
}

func (r *ChannelRegistry) Channel(id domain.ChannelID) (domain.Subchannel, bool) {
	ch, g, ok := r.lookup(id)
	if !ok {
		return domain.Subchannel{}, false
	}
	idx := r.indexOf(g)
	return domain.Subchannel{
		ID:         ch.id,
		GroupID:    g.id,
		GroupIndex: idx,
		Input:      ch.input,
		Primary:    g.channels[0] == ch,
	}, true
}

// ChannelIDs lists every subchannel in group then position order.
func (r *ChannelRegistry) ChannelIDs() []domain.ChannelID {
	out := make([]domain.ChannelID, 0, len(r.owner))
	for _, g := range r.groups {
		for _, ch := range g.channels {
			out = append(out, ch.id)
		}
	}
	return out
}

// ChannelNames lists group names in index order, as announced to the server.
func (r *ChannelRegistry) ChannelNames() []string {
	out := make([]string, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g.name)
	}
	return out
}

// Version changes on every observable mutation.
func (r *ChannelRegistry) Version() uint64 {
	return r.version
}

// Snapshot captures names and inputs in index order.
func (r *ChannelRegistry) Snapshot() domain.InputsSnapshot {
	snap := domain.InputsSnapshot{Groups: make([]domain.GroupSnapshot, 0, len(r.groups))}
	for _, g := range r.groups {
		gs := domain.GroupSnapshot{Name: g.name, Subchannels: make([]domain.InputSelection, 0, len(g.channels))}
		for _, ch := range g.channels {
			gs.Subchannels = append(gs.Subchannels, ch.input)
		}
		snap.Groups = append(snap.Groups, gs)
	}
	return snap
}

// Restore replaces the registry contents with a saved snapshot. Groups with
// invalid or repeated names are skipped, and extra subchannels are dropped
// when the current policy does not allow them. It returns the number of
// groups restored.
func (r *ChannelRegistry) Restore(snapshot domain.InputsSnapshot) int {
	for _, g := range r.groups {
		r.dropChannels(g.channels...)
	}
	r.groups = nil
	r.highlighted = nil

	allowSubchannels := r.capabilities().CanCreateSubchannels()
	for _, gs := range snapshot.Groups {
		if err := validation.ValidateGroupName(gs.Name); err != nil {
			r.logger.Warnw("Skipping saved group with invalid name", "name", gs.Name, "error", err)
			continue
		}
		if r.indexOfName(gs.Name) >= 0 {
			r.logger.Warnw("Skipping saved group with duplicate name", "name", gs.Name)
			continue
		}

		g := r.appendGroup(gs.Name)
		for i, input := range gs.Subchannels {
			if i == 0 {
				g.channels[0].input = normalizeInput(input)
				continue
			}
			if !allowSubchannels {
				r.logger.Infow("Subchannels not available, dropping saved subchannels",
					"name", gs.Name, "dropped", len(gs.Subchannels)-1)
				break
			}
			ch := r.newChannel(normalizeInput(input))
			g.channels = append(g.channels, ch)
			r.owner[ch.id] = g
		}
	}
	r.touch()

	r.logger.Infow("Channel groups restored", "groups", len(r.groups), "saved", len(snapshot.Groups))
	return len(r.groups)
}

// EnsureDefaultGroup adds a group named name when the registry is empty.
func (r *ChannelRegistry) EnsureDefaultGroup(name string) bool {
	if len(r.groups) > 0 {
		return false
	}
	if _, err := r.AddGroup(name); err != nil {
		r.logger.Errorw("Failed to create default channel group", "name", name, "error", err)
		return false
	}
	return true
}

func (r *ChannelRegistry) appendGroup(name string) *groupEntry {
	r.nextGroupID++
	g := &groupEntry{id: r.nextGroupID, name: name}
	ch := r.newChannel(domain.NoInputSelection())
	g.channels = []*channelEntry{ch}
	r.owner[ch.id] = g
	r.groups = append(r.groups, g)
	return g
}

func (r *ChannelRegistry) newChannel(input domain.InputSelection) *channelEntry {
	r.nextChannelID++
	return &channelEntry{id: r.nextChannelID, input: input}
}

func (r *ChannelRegistry) dropChannels(channels ...*channelEntry) {
	ids := make([]domain.ChannelID, 0, len(channels))
	for _, ch := range channels {
		delete(r.owner, ch.id)
		ids = append(ids, ch.id)
	}
	if r.forgetter != nil && len(ids) > 0 {
		r.forgetter.Forget(ids...)
	}
}

func (r *ChannelRegistry) groupAt(index int) (*groupEntry, error) {
	if index < 0 || index >= len(r.groups) {
		// presentation state is out of sync with the registry
		r.logger.Errorw("Channel group index out of range", "group_index", index, "count", len(r.groups))
		return nil, fmt.Errorf("group index %d of %d: %w", index, len(r.groups), domain.ErrIndexOutOfRange)
	}
	return r.groups[index], nil
}

func (r *ChannelRegistry) lookup(id domain.ChannelID) (*channelEntry, *groupEntry, bool) {
	g, ok := r.owner[id]
	if !ok {
		return nil, nil, false
	}
	for _, ch := range g.channels {
		if ch.id == id {
			return ch, g, true
		}
	}
	return nil, nil, false
}

func (r *ChannelRegistry) indexOf(g *groupEntry) int {
	for i, candidate := range r.groups {
		if candidate == g {
			return i
		}
	}
	return -1
}

func (r *ChannelRegistry) indexOfName(name string) int {
	for i, g := range r.groups {
		if g.name == name {
			return i
		}
	}
	return -1
}

func (r *ChannelRegistry) view(index int, g *groupEntry) domain.ChannelGroup {
	cg := domain.ChannelGroup{
		ID:          g.id,
		Index:       index,
		Name:        g.name,
		Highlighted: g == r.highlighted,
		Subchannels: make([]domain.Subchannel, 0, len(g.channels)),
	}
	for i, ch := range g.channels {
		cg.Subchannels = append(cg.Subchannels, domain.Subchannel{
			ID:         ch.id,
			GroupID:    g.id,
			GroupIndex: index,
			Input:      ch.input,
			Primary:    i == 0,
		})
	}
	return cg
}

func (r *ChannelRegistry) touch() {
	r.version++
}

func normalizeInput(input domain.InputSelection) domain.InputSelection {
	if input.IsNoInput() {
		return domain.NoInputSelection()
	}
	return input
}
