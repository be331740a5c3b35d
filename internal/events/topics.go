package events

// Topic constants for domain events emitted by the assistant.
const (
	TopicInvoiceGenerated = "invoice.generated"
	TopicCatalogReplaced  = "catalog.replaced"
	TopicCatalogReloaded  = "catalog.reloaded"
)
