package mcpserver

// ParameterTextContract documents the line grammar the host editor renders
// into its detail control. Served as an MCP resource so clients can parse
// or generate parameter text without guessing.
const ParameterTextContract = `# Parameter Text Format

The host editor renders the selected parameter as a single line of text:

    [TYPE] ID - NAME: DESCRIPTION

- TYPE: module tag in square brackets. One of ECM, TCM, BCM, PCM, ICM,
  OTHER (case-insensitive on input, uppercase canonical).
- ID: decimal digits immediately after the bracket. A trailing non-digit
  suffix is ignored; a token with no leading digits yields an empty id.
- NAME: text up to the first colon, with a single leading "- " or "-"
  stripped.
- DESCRIPTION: everything after the first colon, trimmed.

NAME and DESCRIPTION are optional. A line is recognized as parameter text
when it starts with "[", contains a closing "]", and the bracketed token
parses as a known module type.

Examples:

    [ECM] 12600 - Main Spark: High octane spark table
    [TCM] 42 - Shift Point
    [ECM] 999
`
