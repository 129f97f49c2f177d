package collision

import "fmt"

// Resolve decides whether obj's latest move stands.
//
// Map-collidable objects are checked against maps and object-collidable
// objects against the index using BodyOverlap. When neither check finds a
// collision the object's flag is cleared and Resolve returns false. Otherwise
// the object is moved back to its old position, flagged, re-indexed at that
// position, and Resolve returns true. A nil container skips its check.
//
// The policy is a full single-step rollback: no sliding or partial motion.
func Resolve(obj Collidable, maps MapCollisionContainer, objects ObjectCollisionContainer) (bool, error) {
	caps := obj.Capabilities()

	collided := false
	if maps != nil && caps.Has(MapCollidable) {
		collided = maps.IsBlocking(obj.Hitbox())
	}
	if !collided && objects != nil && caps.Has(ObjectCollidable) {
		collided = len(objects.Collisions(obj, BodyOverlap)) > 0
	}

	if !collided {
		if err := obj.SetCollisionInLastTick(false); err != nil {
			return false, fmt.Errorf("clear collision flag on %d: %w", obj.ID(), err)
		}
		return false, nil
	}

	obj.SetPosition(obj.OldPosition())
	if err := obj.SetCollisionInLastTick(true); err != nil {
		return true, fmt.Errorf("set collision flag on %d: %w", obj.ID(), err)
	}
	if objects != nil {
		objects.Relocate(obj)
	}
	return true, nil
}
