// Package synctree implements the per-entity-type composite node
// graph that knows how to (un)parse its own wire representation and
// track per-client acknowledgement freshness, one bit per node per
// client slot. The scheduler and ingest pipeline treat Tree as the
// opaque per-entity payload codec; this package is where that
// contract is actually implemented for each NetObjEntityType.
package synctree

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/onesync/core/pkg/bitset"
	"github.com/onesync/core/pkg/bitstream"
	"github.com/onesync/core/pkg/spatial"
)

// MaxClients bounds every per-slot bitset in the replication core:
// ack matrices on entities, acked_players on sync-tree nodes, and
// occupant bitsets on vehicle state.
const MaxClients = 64

// MaxSeats bounds a vehicle's occupant table.
const MaxSeats = 8

// EntityType tags the variant of a replicated entity.
type EntityType uint8

const (
	EntityAutomobile EntityType = iota
	EntityBike
	EntityBoat
	EntityHeli
	EntityPlane
	EntitySubmarine
	EntityTrailer
	EntityTrain
	EntityPed
	EntityPlayer
	EntityObject
	EntityPickup
	EntityDoor
)

func (t EntityType) String() string {
	switch t {
	case EntityAutomobile:
		return "automobile"
	case EntityBike:
		return "bike"
	case EntityBoat:
		return "boat"
	case EntityHeli:
		return "heli"
	case EntityPlane:
		return "plane"
	case EntitySubmarine:
		return "submarine"
	case EntityTrailer:
		return "trailer"
	case EntityTrain:
		return "train"
	case EntityPed:
		return "ped"
	case EntityPlayer:
		return "player"
	case EntityObject:
		return "object"
	case EntityPickup:
		return "pickup"
	case EntityDoor:
		return "door"
	default:
		return "unknown"
	}
}

// IsVehicle reports whether t carries a VehicleGameState node.
func (t EntityType) IsVehicle() bool {
	switch t {
	case EntityAutomobile, EntityBike, EntityBoat, EntityHeli, EntityPlane, EntitySubmarine, EntityTrailer, EntityTrain:
		return true
	default:
		return false
	}
}

// FrustumRadius returns the per-type culling radius used by the
// scheduler's radius-frequency mode.
func (t EntityType) FrustumRadius() float32 {
	switch t {
	case EntityPed, EntityPlayer:
		return 2.5
	case EntityHeli, EntityBoat, EntityPlane:
		return 15
	default:
		return 5
	}
}

// Node is one field group in a sync tree: it owns a frame index and a
// per-client-slot ack bitset, and knows how to read/write its own
// wire representation.
type Node interface {
	FrameIndex() uint64
	SetFrameIndex(uint64)
	Acked(slot int) bool
	SetAcked(slot int, v bool)
	ResetAcked()
	Dirty() bool
	Parse(r *bitstream.Buffer) error
	Unparse(w *bitstream.Buffer) (bool, error)
}

type baseNode struct {
	frameIndex uint64
	acked      *bitset.Set
	dirty      bool
}

func newBaseNode() baseNode {
	return baseNode{acked: bitset.New(MaxClients)}
}

func (n *baseNode) FrameIndex() uint64        { return n.frameIndex }
func (n *baseNode) SetFrameIndex(v uint64)    { n.frameIndex = v }
func (n *baseNode) Acked(slot int) bool       { return n.acked.Get(slot) }
func (n *baseNode) SetAcked(slot int, v bool) { n.acked.Put(slot, v) }
func (n *baseNode) ResetAcked()               { n.acked.ClearAll() }
func (n *baseNode) Dirty() bool               { return n.dirty }

// PositionNode carries an entity's world-space position. Present on
// every entity type.
type PositionNode struct {
	baseNode
	Pos mgl32.Vec3
}

func newPositionNode() *PositionNode {
	return &PositionNode{baseNode: newBaseNode()}
}

func (n *PositionNode) Parse(r *bitstream.Buffer) error {
	x, y, z, err := readVec3(r)
	if err != nil {
		return err
	}
	n.Pos = mgl32.Vec3{x, y, z}
	n.dirty = true
	return nil
}

func (n *PositionNode) Unparse(w *bitstream.Buffer) (bool, error) {
	if err := writeVec3(w, n.Pos); err != nil {
		return false, err
	}
	return true, nil
}

// VelocityNode carries an entity's linear velocity.
type VelocityNode struct {
	baseNode
	Vel mgl32.Vec3
}

func newVelocityNode() *VelocityNode {
	return &VelocityNode{baseNode: newBaseNode()}
}

func (n *VelocityNode) Parse(r *bitstream.Buffer) error {
	x, y, z, err := readVec3(r)
	if err != nil {
		return err
	}
	n.Vel = mgl32.Vec3{x, y, z}
	n.dirty = true
	return nil
}

func (n *VelocityNode) Unparse(w *bitstream.Buffer) (bool, error) {
	if err := writeVec3(w, n.Vel); err != nil {
		return false, err
	}
	return true, nil
}

// HealthNode carries health/armor for Ped and Player types.
type HealthNode struct {
	baseNode
	Health uint16
	Armor  uint16
}

func newHealthNode() *HealthNode {
	return &HealthNode{baseNode: newBaseNode()}
}

func (n *HealthNode) Parse(r *bitstream.Buffer) error {
	h, ok := r.Read(16)
	if !ok {
		return fmt.Errorf("synctree: short read on health")
	}
	a, ok := r.Read(16)
	if !ok {
		return fmt.Errorf("synctree: short read on armor")
	}
	n.Health, n.Armor = uint16(h), uint16(a)
	n.dirty = true
	return nil
}

func (n *HealthNode) Unparse(w *bitstream.Buffer) (bool, error) {
	if !w.Write(16, uint64(n.Health)) || !w.Write(16, uint64(n.Armor)) {
		return false, fmt.Errorf("synctree: overflow writing health")
	}
	return true, nil
}

// PlayerCamera is the value accessor exposed by GetPlayerCamera.
type PlayerCamera struct {
	Mode       spatial.CameraMode
	CameraX    float32
	CameraZ    float32
	CamOffset  mgl32.Vec3
	FreeCamPos mgl32.Vec3
}

// PlayerCameraNode carries a Player entity's camera block.
type PlayerCameraNode struct {
	baseNode
	PlayerCamera
}

func newPlayerCameraNode() *PlayerCameraNode {
	return &PlayerCameraNode{baseNode: newBaseNode()}
}

func (n *PlayerCameraNode) Parse(r *bitstream.Buffer) error {
	mode, ok := r.Read(2)
	if !ok {
		return fmt.Errorf("synctree: short read on camera mode")
	}
	camX, err := readFloat32(r)
	if err != nil {
		return err
	}
	camZ, err := readFloat32(r)
	if err != nil {
		return err
	}
	ox, oy, oz, err := readVec3(r)
	if err != nil {
		return err
	}
	fx, fy, fz, err := readVec3(r)
	if err != nil {
		return err
	}
	n.Mode = spatial.CameraMode(mode)
	n.CameraX, n.CameraZ = camX, camZ
	n.CamOffset = mgl32.Vec3{ox, oy, oz}
	n.FreeCamPos = mgl32.Vec3{fx, fy, fz}
	n.dirty = true
	return nil
}

func (n *PlayerCameraNode) Unparse(w *bitstream.Buffer) (bool, error) {
	if !w.Write(2, uint64(n.Mode)) {
		return false, fmt.Errorf("synctree: overflow writing camera mode")
	}
	if err := writeFloat32(w, n.CameraX); err != nil {
		return false, err
	}
	if err := writeFloat32(w, n.CameraZ); err != nil {
		return false, err
	}
	if err := writeVec3(w, n.CamOffset); err != nil {
		return false, err
	}
	if err := writeVec3(w, n.FreeCamPos); err != nil {
		return false, err
	}
	return true, nil
}

// VehicleGameState is the value accessor exposed by GetVehicleGameState.
type VehicleGameState struct {
	Occupants       [MaxSeats]uint16 // object id of occupying ped, 0 = empty
	PlayerOccupants *bitset.Set      // seat bit set iff a Player occupies it
}

// VehicleGameStateNode carries seat/occupant bookkeeping for vehicle
// types.
type VehicleGameStateNode struct {
	baseNode
	Occupants       [MaxSeats]uint16
	PlayerOccupants *bitset.Set
}

func newVehicleGameStateNode() *VehicleGameStateNode {
	return &VehicleGameStateNode{
		baseNode:        newBaseNode(),
		PlayerOccupants: bitset.New(MaxSeats),
	}
}

func (n *VehicleGameStateNode) Parse(r *bitstream.Buffer) error {
	for i := 0; i < MaxSeats; i++ {
		v, ok := r.Read(13)
		if !ok {
			return fmt.Errorf("synctree: short read on occupant %d", i)
		}
		n.Occupants[i] = uint16(v)
	}
	for i := 0; i < MaxSeats; i++ {
		v, ok := r.Read(1)
		if !ok {
			return fmt.Errorf("synctree: short read on player-occupant bit %d", i)
		}
		n.PlayerOccupants.Put(i, v != 0)
	}
	n.dirty = true
	return nil
}

func (n *VehicleGameStateNode) Unparse(w *bitstream.Buffer) (bool, error) {
	for i := 0; i < MaxSeats; i++ {
		if !w.Write(13, uint64(n.Occupants[i])) {
			return false, fmt.Errorf("synctree: overflow writing occupant %d", i)
		}
	}
	for i := 0; i < MaxSeats; i++ {
		bit := uint64(0)
		if n.PlayerOccupants.Get(i) {
			bit = 1
		}
		if !w.Write(1, bit) {
			return false, fmt.Errorf("synctree: overflow writing player-occupant bit %d", i)
		}
	}
	return true, nil
}

// HasPlayerOccupant reports whether any seat holds a Player, used by
// the scheduler's should_be_created override.
func (v VehicleGameState) HasPlayerOccupant() bool {
	return v.PlayerOccupants != nil && v.PlayerOccupants.Any()
}

// PedGameState is the value accessor exposed by GetPedGameState.
type PedGameState struct {
	CurVehicle  uint16 // 0 = not in a vehicle
	CurSeat     int8   // -1 = no seat
	LastVehicle uint16
	LastSeat    int8
}

// PedGameStateNode carries vehicle-seat tracking for Ped and Player
// entities.
type PedGameStateNode struct {
	baseNode
	PedGameState
}

func newPedGameStateNode() *PedGameStateNode {
	return &PedGameStateNode{baseNode: newBaseNode(), PedGameState: PedGameState{LastSeat: -1, CurSeat: -1}}
}

func (n *PedGameStateNode) Parse(r *bitstream.Buffer) error {
	cv, ok := r.Read(13)
	if !ok {
		return fmt.Errorf("synctree: short read on cur_vehicle")
	}
	cs, ok := r.Read(4)
	if !ok {
		return fmt.Errorf("synctree: short read on cur_seat")
	}
	n.CurVehicle = uint16(cv)
	n.CurSeat = decodeSeat(uint8(cs))
	n.dirty = true
	return nil
}

func (n *PedGameStateNode) Unparse(w *bitstream.Buffer) (bool, error) {
	if !w.Write(13, uint64(n.CurVehicle)) {
		return false, fmt.Errorf("synctree: overflow writing cur_vehicle")
	}
	if !w.Write(4, uint64(encodeSeat(n.CurSeat))) {
		return false, fmt.Errorf("synctree: overflow writing cur_seat")
	}
	return true, nil
}

func encodeSeat(seat int8) uint8 {
	if seat < 0 {
		return 0xF
	}
	return uint8(seat)
}

func decodeSeat(v uint8) int8 {
	if v == 0xF {
		return -1
	}
	return int8(v)
}

// Tree is the concrete sync-tree for one entity: the set of nodes
// present depends on the entity's type.
type Tree struct {
	typ      EntityType
	position *PositionNode
	velocity *VelocityNode
	health   *HealthNode
	camera   *PlayerCameraNode
	vehicle  *VehicleGameStateNode
	ped      *PedGameStateNode
	order    []Node
}

// New builds the node set appropriate for typ.
func New(typ EntityType) *Tree {
	t := &Tree{typ: typ, position: newPositionNode()}
	t.order = append(t.order, t.position)

	switch typ {
	case EntityObject, EntityPickup, EntityDoor:
		// position only
	default:
		t.velocity = newVelocityNode()
		t.order = append(t.order, t.velocity)
	}

	if typ.IsVehicle() {
		t.vehicle = newVehicleGameStateNode()
		t.order = append(t.order, t.vehicle)
	}

	if typ == EntityPed || typ == EntityPlayer {
		t.health = newHealthNode()
		t.order = append(t.order, t.health)
		t.ped = newPedGameStateNode()
		t.order = append(t.order, t.ped)
	}

	if typ == EntityPlayer {
		t.camera = newPlayerCameraNode()
		t.order = append(t.order, t.camera)
	}

	return t
}

// Type reports the entity type this tree was built for.
func (t *Tree) Type() EntityType { return t.typ }

// Parse reads every node's wire representation in a fixed order and
// stamps frame on each, per the ingest pipeline's per-sub-record
// contract.
func (t *Tree) Parse(r *bitstream.Buffer, frame uint64) error {
	for _, n := range t.order {
		if err := n.Parse(r); err != nil {
			return err
		}
		n.SetFrameIndex(frame)
	}
	return nil
}

// Unparse writes every node in the same fixed order, reporting
// whether anything was written at all; an empty tree unparses to
// wrote=false so the scheduler can skip the record entirely.
func (t *Tree) Unparse(w *bitstream.Buffer) (bool, error) {
	wroteAny := false
	for _, n := range t.order {
		wrote, err := n.Unparse(w)
		if err != nil {
			return wroteAny, err
		}
		wroteAny = wroteAny || wrote
	}
	return wroteAny, nil
}

// Visit calls fn for every node in this tree, stopping early if fn
// returns false.
func (t *Tree) Visit(fn func(Node) bool) {
	for _, n := range t.order {
		if !fn(n) {
			return
		}
	}
}

// Position returns the entity's position; every tree has one.
func (t *Tree) Position() mgl32.Vec3 {
	return t.position.Pos
}

// PlayerCamera returns the camera block and true if this tree carries
// one (Player entities only).
func (t *Tree) PlayerCamera() (PlayerCamera, bool) {
	if t.camera == nil {
		return PlayerCamera{}, false
	}
	return t.camera.PlayerCamera, true
}

// VehicleGameState returns the occupant state and true if this tree
// carries one (vehicle types only).
func (t *Tree) VehicleGameState() (VehicleGameState, bool) {
	if t.vehicle == nil {
		return VehicleGameState{}, false
	}
	return VehicleGameState{Occupants: t.vehicle.Occupants, PlayerOccupants: t.vehicle.PlayerOccupants}, true
}

// PedGameState returns the seat-tracking state and true if this tree
// carries one (Ped and Player types only).
func (t *Tree) PedGameState() (PedGameState, bool) {
	if t.ped == nil {
		return PedGameState{}, false
	}
	return t.ped.PedGameState, true
}

// SetPedLast copies the current vehicle/seat into last_vehicle/
// last_seat, the occupant updater's final step after reconciling a
// seat transition.
func (t *Tree) SetPedLast(vehicle uint16, seat int8) {
	if t.ped == nil {
		return
	}
	t.ped.LastVehicle = vehicle
	t.ped.LastSeat = seat
}

// ClearOccupantSlot clears seat in this vehicle tree if it still
// references pedObjectID, and clears the matching player-occupant
// bit. It reports whether anything changed.
func (t *Tree) ClearOccupantSlot(seat int8, pedObjectID uint16) bool {
	if t.vehicle == nil || seat < 0 || int(seat) >= MaxSeats {
		return false
	}
	if t.vehicle.Occupants[seat] != pedObjectID {
		return false
	}
	t.vehicle.Occupants[seat] = 0
	t.vehicle.PlayerOccupants.Clear(int(seat))
	return true
}

// ClaimOccupantSlot claims seat in this vehicle tree for pedObjectID
// if it is vacant, setting the player-occupant bit when isPlayer is
// true. It reports whether the claim succeeded.
func (t *Tree) ClaimOccupantSlot(seat int8, pedObjectID uint16, isPlayer bool) bool {
	if t.vehicle == nil || seat < 0 || int(seat) >= MaxSeats {
		return false
	}
	if t.vehicle.Occupants[seat] != 0 {
		return false
	}
	t.vehicle.Occupants[seat] = pedObjectID
	t.vehicle.PlayerOccupants.Put(int(seat), isPlayer)
	return true
}

func readFloat32(r *bitstream.Buffer) (float32, error) {
	bits, ok := r.Read(32)
	if !ok {
		return 0, fmt.Errorf("synctree: short read on float32")
	}
	return math.Float32frombits(uint32(bits)), nil
}

func writeFloat32(w *bitstream.Buffer, v float32) error {
	if !w.Write(32, uint64(math.Float32bits(v))) {
		return fmt.Errorf("synctree: overflow writing float32")
	}
	return nil
}

func readVec3(r *bitstream.Buffer) (float32, float32, float32, error) {
	x, err := readFloat32(r)
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := readFloat32(r)
	if err != nil {
		return 0, 0, 0, err
	}
	z, err := readFloat32(r)
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}

func writeVec3(w *bitstream.Buffer, v mgl32.Vec3) error {
	if err := writeFloat32(w, v.X()); err != nil {
		return err
	}
	if err := writeFloat32(w, v.Y()); err != nil {
		return err
	}
	return writeFloat32(w, v.Z())
}
