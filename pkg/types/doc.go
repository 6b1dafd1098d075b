/*
Package types defines the core data structures shared across clipbridge:
ItemMeta and its content descriptor, the catalog row types (HistoryEntry,
CacheRow, TrustedPeer), discovery and session state enums, and the device
Config surface described in the external interfaces section of the design.
*/
package types
