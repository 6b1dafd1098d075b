/*
Package reconciler runs clipbridge's garbage collector: a fixed
30-second loop that trims the configured account's history past its configured
item count and evicts CAS blobs past the configured byte cap.

Unlike a cluster reconciler reacting to node/task state, there is
nothing here to converge toward beyond two numeric caps, so the loop
is deliberately simple: each cycle calls catalog.Store.TrimHistory and
cas.Store.GC directly, times itself with metrics.NewTimer, and reports
what it removed via metrics.HistoryTrimmedTotal/GCEvictedTotal.

	rec := reconciler.NewReconciler(store, blobs, accountUID, limits)
	rec.Start()
	defer rec.Stop()
*/
package reconciler
