package kafka

import "fmt"

// TopicPrefix namespaces all marketplace topics.
const TopicPrefix = "bulkfoodhub"

// Topic builds a fully-qualified topic name for a domain and action,
// e.g. Topic("cart", "updated") -> "bulkfoodhub.cart.updated".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
