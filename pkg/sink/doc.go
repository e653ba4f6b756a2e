// Package sink delivers usage batches produced by pkg/shareusage.
//
// Every sink renders a batch as an XML packet, one <Device> element per record:
//
//	<Devices>
//	  <Device>
//	    <SessionId>…</SessionId>
//	    <Sequence>1</Sequence>
//	    <DateSent>2026-01-02T15:04:05Z</DateSent>
//	    <Language>Go</Language>
//	    <ClientIP>203.0.113.7</ClientIP>
//	    <header Name="user-agent">Mozilla/5.0 …</header>
//	  </Device>
//	</Devices>
//
// Available sinks:
//
//   - HTTPSink posts the gzip-compressed packet to a collection endpoint. Retries with
//     backoff and a circuit breaker are opt-in; the dispatcher itself never retries.
//   - S3Sink archives each packet as a gzip object under a dated key.
//   - WriterSink writes plain XML to an io.Writer for dry runs and debugging.
package sink
