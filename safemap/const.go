package safemap

import "github.com/GoBlaze/blazert/constants"

const cacheLinePadSize = constants.CacheLinePadSize

type cacheLinePadding struct{ _ [cacheLinePadSize]byte }
