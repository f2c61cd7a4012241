//go:build !halnocheck

package hal

// typeCheck enables the accessor type assertions. Build with -tags
// halnocheck to compile them out.
const typeCheck = true
