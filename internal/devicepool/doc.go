// Package devicepool creates, tracks, switches between and tears down
// concurrent audio device instances, and owns the lifetime of the decoded
// sound buffers they share.
//
// Architecture overview:
//
//	control thread -> Manager -> live device slots
//	audio thread   -> command queue -> Manager.UpdateAll -> Device.Update
//
// Devices are addressed through generational handles (see Handle); a stale
// handle never reaches a device. Buffers are registered with the Manager's
// ResourceTracker and are released only after every device has been told to
// stop using them.
//
// Key interfaces:
//   - Factory: builds device instances, registered once per Manager
//   - Device: one rendering backend owned by the pool
//   - BufferResource: a decoded sound buffer shared by every device
//   - Asset: the sound asset a buffer was decoded from
package devicepool
