// Package softpool implements a generic object pool whose idle objects stay
// reclaimable by the Go runtime. Idle instances are held through weak
// references, so memory pressure can collect them before the owner returns
// or invalidates them; the pool detects the loss lazily at borrow or drain
// time and notifies the factory so side resources are not leaked.
//
// Borrowed objects are exclusively owned by their borrower. The pool is
// unbounded, prefers LIFO reuse, and promises no borrow ordering.
package softpool
