package road

// NewGrid 生成合成网格路网
// 功能：生成rows*cols个路口、相邻路口之间双向连通的网格，内部路口度数为8，边缘路口度数为4或6
// 参数：rows,cols-行列数，spacing-路口间距（米），freeFlowSpeed-自由流速度，carSpacing-每辆车占用长度
// 返回：路网与错误信息
// 说明：路口ID为row*cols+col，坐标为(col*spacing, row*spacing)
func NewGrid(rows, cols int, spacing, freeFlowSpeed, carSpacing float64) (*Network, error) {
	b := NewBuilder(freeFlowSpeed, carSpacing)
	id := func(r, c int) NodeID { return NodeID(r*cols + c) }
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			b.AddNode(id(r, c), float64(c)*spacing, float64(r)*spacing)
		}
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c+1 < cols {
				b.AddEdge(id(r, c), id(r, c+1), spacing)
				b.AddEdge(id(r, c+1), id(r, c), spacing)
			}
			if r+1 < rows {
				b.AddEdge(id(r, c), id(r+1, c), spacing)
				b.AddEdge(id(r+1, c), id(r, c), spacing)
			}
		}
	}
	return b.Build()
}
