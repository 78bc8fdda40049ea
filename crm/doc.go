// Package crm talks to the upstream CRM API on behalf of the gateway.
//
// [TokenCache] keeps the one shared CRM session: a bearer token obtained by
// posting the static credential to the login endpoint and trusted for a fixed
// TTL. Concurrent callers that miss the cache wait on a single login.
//
// [Client] forwards the fixed set of gateway operations ([Route]) with the
// token in the Authorization header and returns upstream bodies unchanged.
// [Client.UploadAttachments] fans a batch of up to [MaxAttachments] files out
// as concurrent uploads and reports each file's outcome in input order.
package crm
