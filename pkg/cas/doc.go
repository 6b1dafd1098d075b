/*
Package cas implements clipbridge's content-addressed blob store: a
hash-sharded filesystem tree under a cache directory, with atomic
tmp-then-rename commits so no partially written blob is ever visible under
its final path. The store trusts the sha256 it is given — integrity
verification against content is the caller's responsibility.
*/
package cas
