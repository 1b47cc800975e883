package jobtrace

// Version is the instrumentation version reported with every span.
const Version = "0.1.0"

const instrumentationName = "github.com/openjobspec/ojs-jobtrace/instrumentation/jobtrace"
