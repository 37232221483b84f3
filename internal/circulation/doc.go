// Package circulation implements the book lifecycle: reserving a book for a
// pickup date, picking it up, returning it and cancelling a reservation.
//
// A book moves through three states:
//
//	available ──reserve──▶ reserved ──pickup──▶ checked_out ──return──▶ available
//	                          │
//	                          └──cancel──▶ available
//
// Book status and reservation count are never edited piecemeal. After every
// change to a book's reservations the service recomputes both with Derive
// from the reservations that remain, inside the same transaction.
//
// Every operation takes an explicit Actor. Pickup, return and cancel are
// limited to the reservation's owner or an administrator.
//
// # Usage
//
//	svc := circulation.NewService(db, circulation.NewClock(loc), cfg.LoanDays)
//	reservation, err := svc.Reserve(ctx, actor, bookID, "2030-01-10")
//	switch circulation.Kind(err) {
//	case circulation.KindValidation:
//		// show err.Error() to the user
//	}
package circulation
